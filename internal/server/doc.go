// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供会议观察服务：HTTP 生命周期管理、chi 路由与
基于 WebSocket 的会议事件推送。

# 核心类型

  - Manager：封装 net/http.Server，提供非阻塞启动、优雅关闭与
    SIGINT/SIGTERM 信号监听。
  - TraceHub：实现 conversation.TraceSink，把会议事件以 JSON
    广播给所有 WebSocket 订阅者，并为新订阅者回放最近的事件。
  - NewRouter：挂载 /ws/trace、/metrics、/healthz 与 /session。

# 背压

每个订阅者有独立的发送队列，队列满时丢弃该订阅者的事件，
会议协程永远不会因为慢客户端而阻塞。
*/
package server
