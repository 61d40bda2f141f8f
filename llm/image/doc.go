// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// 包 image 提供设计图生成。OpenAIGenerator 调用兼容
// /v1/images/generations 的接口，把返回的图片保存到输出目录。
package image
