// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package tlsutil 为 LLM 客户端、图片生成客户端和 Redis 连接提供统一的
// TLS 加固配置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
