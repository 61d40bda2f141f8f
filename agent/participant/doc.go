// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 participant 实现会议参与者。

# 概述

Participant 是所有角色共享的基础实现，封装 llm.Provider、提示词目录、
个人记忆（memory.Store）与会议时间线（Board）。每个操作遵循同一流程：
组装提示词 → 调用模型 → 解析 → 写入记忆与时间线 → 返回。
模型调用失败时不写入任何内容，错误原样返回给调度方。

# 角色

  - Craftsman — EvaluateDesign、SuggestMaterials
  - Consumer — EvaluateProduct、SuggestImprovements、EvaluateMarketPotential、ProvideFeedback
  - Manufacturer — EvaluateFeasibility、EstimateCosts
  - Designer — CreateDesignConcept、GenerateDesignPrompt、AnalyzeDesignImage

角色视图按原始角色获取（Participant.Craftsman() 等），换位思考只改变当前角色。

# 讨论提示词顺序

 1. 基础讨论提示词（角色、主题）
 2. 外部上下文，标题“讨论上下文”
 3. 时间线中其他人的发言（不为“暂无”时）
 4. 个人相关记忆，标题“个人相关记忆”
*/
package participant
