package clients

import (
	"context"
	"fmt"

	ws "koperasi-backend/internal/transport/websocket"
)

type WebSocketClient struct {
	hub *ws.Hub
}

func NewWebSocketClient(hub *ws.Hub) *WebSocketClient {
	return &WebSocketClient{
		hub: hub,
	}
}

// NotifyChange tells every connected dashboard that a table changed so it can
// refetch. Mirrors the realtime subscriptions the frontend listens on.
func (c *WebSocketClient) NotifyChange(table, event string, data any) {
	if c.hub == nil {
		return
	}

	c.hub.BroadcastAll(&ws.Message{
		Type:    "change",
		Channel: table,
		Data: map[string]interface{}{
			"table": table,
			"event": event,
			"row":   data,
		},
	})
}

func (c *WebSocketClient) NotifyReportProgress(
	ctx context.Context,
	operatorID int64,
	reportID string,
	progress float64,
	stage string,
) error {
	if c.hub == nil {
		return nil
	}

	channel := fmt.Sprintf("notify_operator_of_report_progress#%d", operatorID)
	data := map[string]interface{}{
		"id":       reportID,
		"progress": progress,
	}
	if stage != "" {
		data["stage"] = stage
	}

	message := &ws.Message{
		Type:    "report_progress",
		Channel: channel,
		Data:    data,
	}

	c.hub.Broadcast(operatorID, message)
	return nil
}

func (c *WebSocketClient) NotifyReportComplete(
	ctx context.Context,
	operatorID int64,
	reportID string,
	url string,
	filename string,
) error {
	if c.hub == nil {
		return nil
	}

	channel := fmt.Sprintf("notify_operator_when_report_complete#%d", operatorID)
	message := &ws.Message{
		Type:    "report_complete",
		Channel: channel,
		Data: map[string]interface{}{
			"id":          reportID,
			"url":         url,
			"filename":    filename,
			"operator_id": operatorID,
		},
	}

	c.hub.Broadcast(operatorID, message)
	return nil
}

// NotifyReportFailed notifies an operator that an export failed with the provided error message.
func (c *WebSocketClient) NotifyReportFailed(ctx context.Context, operatorID int64, reportID string, errMsg string) error {
	if c.hub == nil {
		return nil
	}

	channel := fmt.Sprintf("notify_operator_when_report_failed#%d", operatorID)
	message := &ws.Message{
		Type:    "report_failed",
		Channel: channel,
		Data: map[string]interface{}{
			"id":          reportID,
			"message":     errMsg,
			"operator_id": operatorID,
		},
	}

	c.hub.Broadcast(operatorID, message)
	return nil
}
