// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
会议阶段、LLM 调用、存储提交与缓存四个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，所有指标按 namespace 隔离。Collector 的方法对 nil
接收者安全，未启用指标时组件可以直接持有 nil。

# 主要能力

  - 会议指标：阶段切换计数、阶段耗时、按阶段与发言类型的发言计数、
    投票结果规模。
  - LLM 指标：请求总数、请求耗时、估算 Token 用量，按 provider/model/operation 分组。
  - 存储指标：批量提交次数与耗时、本地回退次数。
  - 缓存指标：记忆条目缓存命中与未命中。
  - HTTP 指标：实况推送服务的请求计数与耗时。
*/
package metrics
