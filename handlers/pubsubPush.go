package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/lacase_backend/config"
	"github.com/mmdatafocus/lacase_backend/models"
	"github.com/mmdatafocus/lacase_backend/utils"
	"github.com/sirupsen/logrus"
)

// PubSubPushEnvelope is the body Pub/Sub push subscriptions POST.
type PubSubPushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		MessageId  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// PubSubPushHandler triggers a provisioning run from a scheduled Pub/Sub message.
// Malformed messages are acked; a run that cannot start is nacked so Pub/Sub redelivers.
func PubSubPushHandler(p Provisioner, routes []config.Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !config.EnvBool("ENABLE_LA_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(http.StatusNoContent)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusNoContent)
			return
		}
		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(http.StatusNoContent)
			return
		}

		var req ProvisionRequest
		if len(envelope.Message.Data) > 0 {
			if err := json.Unmarshal(envelope.Message.Data, &req); err != nil {
				config.LogError(config.GetLogger(), moduleName, "PubSubPushHandler", "decoding message data", envelope.Message.MessageId, err)
				c.Status(http.StatusNoContent)
				return
			}
		}
		selected, unknown := selectRoutes(routes, req.RouteIds)
		if len(unknown) > 0 || len(selected) == 0 {
			config.GetLogger().WithFields(logrus.Fields{"message_id": envelope.Message.MessageId, "route_ids": unknown}).Warn("pubsub push names unknown routes")
			c.Status(http.StatusNoContent)
			return
		}

		ctx := c.Request.Context()
		if cid := envelope.Message.Attributes["correlation_id"]; cid != "" {
			ctx = utils.SetCorrelationIdInContext(ctx, cid)
		}
		ctx = utils.SetTriggeredByInContext(ctx, models.RunTriggeredSystem)
		if _, err := p.Run(ctx, selected); err != nil {
			config.LogError(config.GetLogger(), moduleName, "PubSubPushHandler", "running provisioning", envelope.Message.MessageId, err)
			c.Status(http.StatusServiceUnavailable)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
