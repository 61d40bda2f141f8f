// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// 包 tokenizer 提供提示词 Token 计数，用于限流窗口与提示词预算裁剪。
// OpenAI 家族模型使用 tiktoken 精确计数，其余模型或编码不可用时
// 回退到区分中日韩字符的估算器。
package tokenizer
