// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 prompts 提供按角色与任务组织的提示词目录。

目录以 YAML 描述，默认版本嵌入在二进制中，也可以从文件加载覆盖版本。
每个角色包含系统提示词（角色、身份、行为政策、输出规则）与一个
默认关键词池；每个任务是一段带 {{变量}} 占位符的模板，可按角色覆盖。
未提供的变量保持原样，便于在日志中发现遗漏。
*/
package prompts
