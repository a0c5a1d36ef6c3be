package state

// LoadState 资源加载状态
type LoadState int

const (
	// Idle 尚未加载或失败已确认
	Idle LoadState = iota
	// Loading 请求进行中
	Loading
	// Loaded 数据已就绪
	Loaded
	// Failed 最近一次加载失败，错误需展示给用户
	Failed
)

// String 实现fmt.Stringer
func (s LoadState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
