package constants

import "time"

const (
	CHANNEL_SIZE = 100 // 通道大小

	WS_FRAME_RATE  = 20 // 每条 WebSocket 连接每秒允许的上行帧数
	WS_FRAME_BURST = 40

	FRIENDSHIP_DURATION_DAYS = 7  // 好友关系有效期（天）
	CHAT_INACTIVITY_HOURS    = 24 // 单聊无活动清空阈值（小时）
	GROUP_INACTIVITY_HOURS   = 48 // 多人会话无活动清空阈值（小时），保留给群聊

	VIEW_ONCE_GRACE      = time.Second      // 阅后即焚的展示宽限期
	TIMED_DELETE_DEFAULT = 10 * time.Second // 定时销毁的默认时长
	TYPING_DEBOUNCE      = 2 * time.Second  // 输入状态空闲多久后清除

	NAME_HISTORY_MAX = 3 // 本地昵称历史最多保留条数

	DEEP_LINK_PARAM = "addId" // 分享链接中携带目标用户 ID 的参数名
	CHAT_ID_SEP     = "_"     // 会话 ID 分隔符
)
