// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 conversation 驱动一场多角色文创设计会议的阶段机。

# 概述

Orchestrator 按固定顺序推进会议阶段：

	init → image_reference（可选）→ introduction → discussion → keywords →
	voting → waiting_final_keywords → role_switch → discussion_after_switch →
	keywords_after_switch → waiting_for_user_input → image_generation → end

每个阶段内参与者严格串行发言，后发言者能看到先发言者写入时间线的内容。
任何一次模型调用失败都会终止当前阶段并把错误返回给调用方，阶段不会前进。

# 发言顺序

参与者中至少有手艺人、制造商、设计师各一名且消费者不少于三名时，
讨论使用固定顺序 [手艺人, 消费者1, 制造商, 消费者2, 设计师, 消费者3]，
其余参与者按名单顺序排在后面；否则每轮使用随机排列。

# 角色转换

Derange 从当前角色的多重集合出发生成一个错排，保证没有参与者保留原角色。

# 事件流

每个阶段的开始、结束、流式片段、完整发言与错误都会以 TraceEvent
发布到 TraceSink，终端界面与 WebSocket 推送都通过它接入。
*/
package conversation
