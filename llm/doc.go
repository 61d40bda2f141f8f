// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 定义会议参与者使用的大语言模型窄接口。

# 概述

参与者只依赖 Provider 的四个能力：纯文本生成、带图像生成、流式生成
以及是否支持视觉。具体的 HTTP 实现位于 llm/providers 子包，按服务家族
由 llm/factory 组装。

# 中间件

Provider 可以通过 Middleware 层层包装，核心代码对包装层无感知：

  - WithRetry — 对可重试错误做指数退避重试（流式调用在首个分片之前）
  - WithRateLimit — 请求数与滚动窗口 Token 数双重限流
  - WithVisionPipeline — 聊天模型不支持视觉时，先由视觉模型描述图片
  - WithMetrics — 记录调用次数、耗时与提示词 Token
  - WithLogging — 结构化日志

使用 Chain 按顺序组合：

	p := llm.Chain(base,
	    llm.WithLogging(logger),
	    llm.WithMetrics(collector),
	    llm.WithRetry(retryer),
	)
*/
package llm
