package notifier

import (
	"fmt"
	"html"
	"time"
)

// FormatTriggerFailure reports a firing that was rolled back.
func FormatTriggerFailure(trigger string, err error, at time.Time) string {
	return fmt.Sprintf("⚠️ <b>%s 已回滚</b>\n\n时间: %s\n原因: %s\n\n下次触发照常执行",
		html.EscapeString(trigger), at.Format(time.DateTime), html.EscapeString(err.Error()))
}

// FormatFatal reports that the process is stopping and needs a supervisor restart.
func FormatFatal(err error, at time.Time) string {
	return fmt.Sprintf("🛑 <b>交易时段服务退出</b>\n\n时间: %s\n原因: %s\n\n等待守护进程重启",
		at.Format(time.DateTime), html.EscapeString(err.Error()))
}
