// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 persistence 提供与后端无关的存储适配层，承载参与者记忆与会议时间线。

# 概述

上层只依赖三种数据形态：按分数（时间戳）排序的有序日志、按 ID 存取的
结构化记录（字段表）、以及按类别划分的二级索引（同样是有序日志）。
本包把这三种形态统一抽象为 Backend，并提供本地与远程两种实现，
由 Adapter 根据策略选择后端并在失败时永久回退。

# 核心接口

  - Backend: 存储后端契约，批量提交（Batch）、有序读取、记录读取、
    前缀扫描、导出与按前缀删除。
  - Batch: 一次逻辑提交中的全部写操作，整体成功或整体报错。

# 实现

  - LocalBackend: 进程内存储，可选将每个顶层作用域
    （agent:{id} / meeting:{id}）镜像为一个 JSON 数组文件。
  - RedisBackend: 基于 Redis 的 HASH + ZSET，提交走 MULTI/EXEC 管道。
  - Adapter: auto / file / remote 三种策略。auto 优先远程，
    首次连接或任意一次操作失败后只记录一次日志，并在实例生命周期内
    永久切换到本地后端。

# 会议清理

Cleaner 在新会议开始前按文档化的前缀（meeting: 与 agent:）并发清理，
可选先通过 BackupSink（GORM：sqlite / postgres / mysql）备份，
返回按前缀统计的 CleanReport。
*/
package persistence
