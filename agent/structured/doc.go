// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
# 概述

包 structured 集中了对 LLM 自由文本输出的全部解析逻辑，每个解析器都有
明确的回退链，解析失败在本包内恢复，不向调用方抛出。

# 关键词列表

ParseKeywordList 依次尝试：

 1. 严格 JSON 数组（允许包在 markdown 代码块或 {"keywords": [...]} 中）
 2. 第一个 [...] 片段内按逗号切分
 3. 按行切分并去掉项目符号与引号；单行文本只有带分隔符时才会被切分

返回值同时给出命中的策略，便于记录日志与指标。NormalizeKeyword、
Dedupe 与 FillFromPool 负责清洗、去重与补齐。

# JSON 对象

ParseJSONObject 先按完整 JSON 解析，失败时退回到第一个 { 与最后一个 }
之间的片段，用于角色的评价、成本估算等结构化回答。
*/
package structured
