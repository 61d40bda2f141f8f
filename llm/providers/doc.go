// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 providers 提供 OpenAI 兼容服务共享的线上格式与错误映射。

# 核心内容

  - MapHTTPError — HTTP 状态码到 types.Error 的映射（含可重试标记）
  - ReadErrorMessage — 解析 JSON 错误体，失败回退原始文本
  - ChatRequest / ChatResponse / ChatMessage — chat/completions 线上格式，
    消息内容支持纯文本或图文分片

具体实现见 openaicompat（HTTP + SSE）与 offline（离线演示）子包。
*/
package providers
