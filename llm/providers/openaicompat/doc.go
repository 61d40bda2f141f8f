// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 openaicompat 实现所有 OpenAI 兼容服务共用的 llm.Provider。

DeepSeek、Qwen、GLM、Moonshot、Doubao、SiliconFlow、Ollama 等服务
均暴露 /v1/chat/completions 兼容接口，差异只在 BaseURL、默认模型、
鉴权头与是否支持视觉，由 Config 描述。

  - Generate — 非流式补全
  - GenerateStream — SSE 流式补全，逐分片回调
  - GenerateWithImage — 图片以 base64 data URL 作为 image_url 分片发送
*/
package openaicompat
