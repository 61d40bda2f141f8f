// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
craftmeet 是多角色剪纸文创设计会议的命令行入口。

	craftmeet                         # 进入交互式菜单
	craftmeet run -config craftmeet.yaml -env .env
	craftmeet clean -participants -backup
	craftmeet version

配置优先级为默认值、YAML 文件、.env 文件、环境变量。启用 TRACE_ENABLED
后会在后台启动观察服务，提供会议实况 WebSocket、Prometheus 指标与会话快照。
*/
package main
