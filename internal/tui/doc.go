// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package tui 提供 craftmeet 的交互式终端菜单。

菜单基于 bubbletea，选项包括开始会议、看图讲故事、设计产品、切换主题、
切换打字机效果、AI 绘图测试、关键词提取测试与退出。每个动作都在后台
协程中运行，会议事件通过 conversation.TraceSink 流入界面并按主题着色；
动作结束后（包括出错）总会回到顶层菜单。

具体业务由 Backend 接口提供，命令行入口负责组装。
*/
package tui
