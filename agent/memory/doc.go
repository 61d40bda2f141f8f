// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 memory 提供参与者私有记忆：按类型记录、按时间检索、有界淘汰。

# 概述

每个参与者拥有一个 Store，记忆条目以时间有序的 ID 写入存储适配层：

  - agent:{participant_id}:memory:{entry_id}       条目字段
  - agent:{participant_id}:memories:list           全部条目的有序日志
  - agent:{participant_id}:memories:types:{type}   按类型的有序日志
  - agent:{participant_id}:stats                   计数器

一次 AddMemory 在同一个批次内写入以上四处并附带 TTL。条目数超过
MaxMemories 时按有序日志排名淘汰最旧的条目。

# 检索

  - GetRelevantMemories: 最近优先的格式化文本（topic 预留给语义排序）
  - GetMemoriesByType: 指定类型，最近优先
  - SearchMemoriesByContent: 对已物化条目做子串匹配，保持最近优先
  - GetAllMemories: 时间正序

读取过的条目会进入一个小型 LRU 缓存，分页检索时跳过后端读取，
ClearMemories 会同时清空缓存。
*/
package memory
