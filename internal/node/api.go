package node

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	json2 "github.com/gorilla/rpc/v2/json2"

	"github.com/danmuck/roslink/internal/control"
)

// PublisherUpdateArgs is the registry push: the authoritative publisher
// list for one topic.
type PublisherUpdateArgs struct {
	CallerID   string   `json:"callerid"`
	Topic      string   `json:"topic"`
	Publishers []string `json:"publishers"`
}

// handleRPC dispatches the node control API. Methods mirror the ones
// the node itself calls on its peers, so both directions speak the
// same dialect.
func (n *Node) handleRPC(c *gin.Context) {
	codec := json2.NewCodec()
	req := codec.NewRequest(c.Request)
	method, err := req.Method()
	if err != nil {
		req.WriteError(c.Writer, http.StatusBadRequest, err)
		return
	}

	switch method {
	case "publisherUpdate":
		var args PublisherUpdateArgs
		if err := req.ReadRequest(&args); err != nil {
			req.WriteError(c.Writer, http.StatusBadRequest, err)
			return
		}
		req.WriteResponse(c.Writer, n.publisherUpdate(c.Request.Context(), args))
	case "getBusStats":
		req.WriteResponse(c.Writer, n.busStats())
	case "getPid":
		req.WriteResponse(c.Writer, okEnvelope("pid", n.pid))
	case "getMasterUri":
		req.WriteResponse(c.Writer, okEnvelope("master uri", n.cfg.MasterURI))
	case "getSubscriptions":
		req.WriteResponse(c.Writer, n.subscriptions())
	case "shutdown":
		var args control.ShutdownArgs
		if err := req.ReadRequest(&args); err != nil {
			req.WriteError(c.Writer, http.StatusBadRequest, err)
			return
		}
		n.RequestShutdown(args.Message)
		req.WriteResponse(c.Writer, okEnvelope("shutdown", 1))
	default:
		req.WriteError(c.Writer, http.StatusNotFound, &json2.Error{
			Code:    json2.E_NO_METHOD,
			Message: "unknown method " + method,
		})
	}
}

func (n *Node) publisherUpdate(ctx context.Context, args PublisherUpdateArgs) control.Envelope {
	n.mu.Lock()
	defer n.mu.Unlock()
	topic, ok := n.topics[args.Topic]
	if !ok {
		return control.Envelope{
			Code:   control.StatusFailure,
			Status: "not subscribed to " + args.Topic,
			Value:  mustRaw(0),
		}
	}
	topic.UpdatePublishers(ctx, args.Publishers, false)
	return okEnvelope("publisher list updated", len(args.Publishers))
}

// busStats reports, per topic, the name and the per-link reception
// rows (remote id, bytes, messages, drop estimate, alive flag).
func (n *Node) busStats() control.Envelope {
	n.mu.Lock()
	defer n.mu.Unlock()
	report := make([]any, 0, len(n.topics))
	for _, name := range n.topicNamesLocked() {
		stats := n.topics[name].GetStats()
		rows := make([]any, 0, len(stats.Links))
		for _, row := range stats.Links {
			rows = append(rows, []any{
				row.RemoteID, row.BytesReceived, row.MessagesReceived,
				row.DropEstimate, row.Connected,
			})
		}
		report = append(report, []any{stats.Topic, rows})
	}
	return okEnvelope("bus stats", report)
}

func (n *Node) subscriptions() control.Envelope {
	n.mu.Lock()
	defer n.mu.Unlock()
	pairs := make([][]string, 0, len(n.topics))
	for _, name := range n.topicNamesLocked() {
		topic := n.topics[name]
		pairs = append(pairs, []string{topic.Name(), topic.TypeName()})
	}
	return okEnvelope("subscriptions", pairs)
}

func okEnvelope(status string, value any) control.Envelope {
	return control.Envelope{
		Code:   control.StatusSuccess,
		Status: status,
		Value:  mustRaw(value),
	}
}

func mustRaw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
