package telnet

// telnet 协议控制字节
// 公共路由服务器大多会在连接初期发起少量选项协商，
// 这里统一拒绝协商并把控制序列从数据流中剥离，保证提示符匹配只看到纯文本
const (
	iacSE   = 240
	iacSB   = 250
	iacWill = 251
	iacWont = 252
	iacDo   = 253
	iacDont = 254
	iacIAC  = 255
)

const (
	iacStateData = iota
	iacStateIAC
	iacStateOption
	iacStateSub
	iacStateSubIAC
)

// iacFilter 跨读取块的 IAC 解析器
// 状态需要跨 chunk 保留，协商序列可能被任意切分
type iacFilter struct {
	state int
	cmd   byte
}

// filter 剥离控制序列，返回纯数据与需要回写的拒绝应答
func (f *iacFilter) filter(in []byte) (data []byte, reply []byte) {
	data = make([]byte, 0, len(in))
	for _, b := range in {
		switch f.state {
		case iacStateData:
			if b == iacIAC {
				f.state = iacStateIAC
				continue
			}
			data = append(data, b)
		case iacStateIAC:
			switch b {
			case iacIAC:
				// IAC IAC 表示转义的数据字节 255
				data = append(data, b)
				f.state = iacStateData
			case iacWill, iacWont, iacDo, iacDont:
				f.cmd = b
				f.state = iacStateOption
			case iacSB:
				f.state = iacStateSub
			default:
				f.state = iacStateData
			}
		case iacStateOption:
			switch f.cmd {
			case iacDo:
				reply = append(reply, iacIAC, iacWont, b)
			case iacWill:
				reply = append(reply, iacIAC, iacDont, b)
			}
			f.state = iacStateData
		case iacStateSub:
			if b == iacIAC {
				f.state = iacStateSubIAC
			}
		case iacStateSubIAC:
			if b == iacSE {
				f.state = iacStateData
			} else {
				f.state = iacStateSub
			}
		}
	}
	return data, reply
}
