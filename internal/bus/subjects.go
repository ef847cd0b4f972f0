package bus

// Subject names for the three fan-out topics this pipeline carries.
// Every cmd/* process that publishes or subscribes uses these
// constants rather than inlining the literal strings.
const (
	SubjectBroadcasterFanout = "broadcaster_fanout"
	SubjectChatFanout        = "chat_fanout"
	SubjectAnomalyFanout     = "anomaly_fanout"
)
