package i18n

// traditionalChineseMessages contains all Traditional Chinese translations.
var traditionalChineseMessages = map[string]string{
	// Playback and queue notifications
	"notify.now_playing":        "正在播放：%s - %s",
	"notify.added_to_queue":     "已加入佇列：%s",
	"notify.added_next":         "下一首播放：%s",
	"notify.removed_from_queue": "已從佇列移除：%s",
	"notify.queue_cleared":      "已從佇列清除 %d 首歌曲",
	"notify.repeat_mode":        "重複播放：%s",
	"notify.shuffle_on":         "隨機播放：開啟",
	"notify.shuffle_off":        "隨機播放：關閉",

	// Profile notifications
	"notify.liked":      "已按讚：%s",
	"notify.unliked":    "已取消按讚：%s",
	"notify.handle_set": "已登入為 %s",

	// Error messages
	"error.play_failed":       "無法播放 %s：%s",
	"error.add_failed":        "無法將 %s 加入佇列",
	"error.track_not_visible": "已加入 %s，但佇列中一直找不到",
	"error.remove_current":    "無法移除正在播放的歌曲",
	"error.remove_failed":     "無法從佇列移除歌曲",
	"error.move_failed":       "無法移動歌曲",
	"error.jump_failed":       "無法跳至該歌曲",
	"error.clear_failed":      "無法清除佇列",
	"error.no_handle":         "請先輸入暱稱",
	"error.like_failed":       "無法更新按讚",
	"error.in_flight":         "%s 正在處理中",
	"error.search_failed":     "搜尋失敗",
	"error.generic":           "發生錯誤，請再試一次。",

	// Reasons used inside error.play_failed
	"reason.not_found":      "佇列中一直沒有出現",
	"reason.enqueue_failed": "播放器拒絕了請求",
	"reason.select_failed":  "播放器無法切換歌曲",
	"reason.unavailable":    "無法連線到播放器",
}
