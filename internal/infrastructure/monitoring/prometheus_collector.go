package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exposes registry and gateway metrics. All methods are nil-safe
// so components can run without metrics in tests.
type Collector struct {
	participantsConnected prometheus.Gauge
	signalMessagesRelayed *prometheus.CounterVec
	roomFullRejections    prometheus.Counter
	roomsCreatedTotal     prometheus.Counter
	connectionsTotal      prometheus.Counter
}

func NewCollector() *Collector {
	return &Collector{
		participantsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "roomlink_participants_connected",
			Help: "Number of participants currently bound to a room",
		}),

		signalMessagesRelayed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roomlink_signal_messages_relayed_total",
			Help: "Signaling messages relayed between peers, by type",
		}, []string{"type"}),

		roomFullRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomlink_room_full_rejections_total",
			Help: "Join attempts rejected because the room was at capacity",
		}),

		roomsCreatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomlink_rooms_created_total",
			Help: "Rooms created, explicitly or lazily",
		}),

		connectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomlink_signal_connections_total",
			Help: "WebSocket signaling connections accepted",
		}),
	}
}

func (c *Collector) RoomCreated() {
	if c == nil {
		return
	}
	c.roomsCreatedTotal.Inc()
}

func (c *Collector) ParticipantJoined() {
	if c == nil {
		return
	}
	c.participantsConnected.Inc()
}

func (c *Collector) ParticipantLeft() {
	if c == nil {
		return
	}
	c.participantsConnected.Dec()
}

func (c *Collector) MessageRelayed(messageType string) {
	if c == nil {
		return
	}
	c.signalMessagesRelayed.WithLabelValues(messageType).Inc()
}

func (c *Collector) RoomFullRejected() {
	if c == nil {
		return
	}
	c.roomFullRejections.Inc()
}

func (c *Collector) ConnectionAccepted() {
	if c == nil {
		return
	}
	c.connectionsTotal.Inc()
}
