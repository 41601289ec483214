package meshpb

// PortNum multiplexes the payload type carried by a Data message, mirroring
// the Meshtastic PortNum enum.
type PortNum uint32

const (
	PortUnknown      PortNum = 0
	PortTextMessage  PortNum = 1
	PortPosition     PortNum = 3
	PortNodeInfo     PortNum = 4
	PortRouting      PortNum = 5
	PortAdmin        PortNum = 6
	PortTelemetry    PortNum = 67
	PortTraceroute   PortNum = 70
	PortNeighborInfo PortNum = 71
)

func (p PortNum) String() string {
	switch p {
	case PortTextMessage:
		return "TEXT_MESSAGE_APP"
	case PortPosition:
		return "POSITION_APP"
	case PortNodeInfo:
		return "NODEINFO_APP"
	case PortRouting:
		return "ROUTING_APP"
	case PortAdmin:
		return "ADMIN_APP"
	case PortTelemetry:
		return "TELEMETRY_APP"
	case PortTraceroute:
		return "TRACEROUTE_APP"
	case PortNeighborInfo:
		return "NEIGHBORINFO_APP"
	default:
		return "UNKNOWN_APP"
	}
}
