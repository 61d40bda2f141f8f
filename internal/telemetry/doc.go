// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package telemetry 负责 OpenTelemetry SDK 的初始化与关闭。

会议编排器和参会者通过 otel 全局 tracer 记录阶段与发言的 span。
启用遥测后，这些 span 与指标经 OTLP gRPC 导出；禁用时全局 provider
保持 noop，不产生任何网络连接。
*/
package telemetry
