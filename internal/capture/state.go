package capture

// State はキャプチャセッションの状態
type State string

const (
	StateIdle                State = "idle"                 // 未開始
	StateConfiguring         State = "configuring"          // 許可の解決とグラフの構成中
	StateRunning             State = "running"              // フレーム配信中
	StateUnauthorized        State = "unauthorized"         // カメラの利用が拒否された（終端）
	StateConfigurationFailed State = "configuration_failed" // 構成に失敗した（終端）
	StateStopped             State = "stopped"              // 停止済み（終端）
)

// transitions は許可された状態遷移
var transitions = map[State][]State{
	StateIdle:        {StateConfiguring, StateStopped},
	StateConfiguring: {StateRunning, StateUnauthorized, StateConfigurationFailed, StateStopped},
	StateRunning:     {StateStopped, StateConfigurationFailed},
}

// Terminal は終端状態かどうかを返す
func (s State) Terminal() bool {
	switch s {
	case StateUnauthorized, StateConfigurationFailed, StateStopped:
		return true
	default:
		return false
	}
}

// Failed はホストに通知すべき失敗状態かどうかを返す
func (s State) Failed() bool {
	return s == StateUnauthorized || s == StateConfigurationFailed
}

// CanTransition は from から to への遷移が許可されているかを返す
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
