// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 deliberation 提供会议关键词的共识投票引擎。

# 算法

ConsensusVoting 对一组有序选票计票：

 1. 统计每个关键词获得的票数（大小写敏感，同一张选票内重复只计一次）
 2. 按票数降序、首次出现顺序升序排序，保证平票结果确定
 3. threshold > 0 时只保留票数 >= ⌊选票数 × threshold⌋ 的关键词
 4. 截取前 max_keywords 个

# 核心类型

  - Ballot：一位投票者的关键词列表
  - VoteCount：关键词及其票数
  - Engine：带配置与指标的投票引擎。Decide 在阈值过滤后结果为空、
    且原始关键词池不超过上限时，直接采用去重后的并集
*/
package deliberation
