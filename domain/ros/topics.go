package ros

// TopicSpec names a topic and its ROS message type.
type TopicSpec struct {
	Name        string
	MessageType string
}

// Topics the session subscribes to on every connection.
var (
	TopicGPS            = TopicSpec{Name: "/gps/fix", MessageType: "sensor_msgs/NavSatFix"}
	TopicRotationVector = TopicSpec{Name: "/rotation_vector", MessageType: "geometry_msgs/Vector3"}
	TopicRoverStatus    = TopicSpec{Name: "/rover_status", MessageType: "custom_interfaces/RoverStatus"}
	TopicGlobalPlan     = TopicSpec{Name: "/global_plan", MessageType: "custom_interfaces/TargetArray"}
)

// SubscribedTopics lists the fixed topic set in subscription order.
func SubscribedTopics() []TopicSpec {
	return []TopicSpec{TopicGPS, TopicRotationVector, TopicRoverStatus, TopicGlobalPlan}
}

// Node listing service exposed by rosapi.
const (
	NodesService     = "/rosapi/nodes"
	NodesServiceType = "rosapi/Nodes"
)
