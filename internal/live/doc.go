// Package live 实现在线成员注册表与消息扇出。
//
// 组成：
//   - Registry：会话标识 -> 连接集合，首个连接加入时创建成员与位置状态，最后一个连接离开时一并销毁；
//   - Directory：会话标识 -> 显示名（user<N>），每个标识只分配一次；
//   - PresenceStore：会话标识 -> 位置、global 标志与距离阈值；
//   - Broadcaster：单播与全量广播，发送失败的连接会被关闭并移出注册表；
//   - Dispatcher：把入站文本路由到命令或聊天广播。
//
// 一致性说明：
//
// 广播遍历的是注册表的时间点快照。广播期间加入或离开的会话可能收到也可能收不到该消息，
// 整个扇出过程不提供线性一致性；同一连接上的消息按发送顺序写出，不同连接之间不保证顺序。
package live
