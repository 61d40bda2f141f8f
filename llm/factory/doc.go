// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// 包 factory 按服务家族名称组装 llm.Provider。
// 家族表把名称映射到 OpenAI 兼容的 BaseURL、接口路径、默认模型与视觉能力，
// 组装时依次叠加日志、指标、两阶段视觉、重试与限流中间件。
// 该逻辑放在独立子包中，以避免 llm 与具体实现之间的循环依赖。
package factory
