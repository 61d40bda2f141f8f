// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package testutil 提供 craftmeet 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 存储辅助: StartMiniRedis 启动内存 Redis，TempImage 写入占位图片
  - 异步断言: AssertEventuallyTrue / AssertEventuallyEqual

# 子包

  - testutil/mocks: MockProvider（llm.Provider），支持规则匹配、
    顺序脚本、流式分片与错误注入；ImageGenerator 记录绘图提示词
  - testutil/fixtures: 会议样例数据（自我介绍、讨论回复、设计概念），
    MeetingResponder / MeetingProvider 按提示词驱动完整会议

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider().WithRule("关键词", `["竹编","灯具"]`)
	text, err := provider.Generate(ctx, "请提炼关键词", "")
*/
package testutil
