package syncer

// Progress receives progress reports. A Progress is opened by a
// ProgressFactory and closed by its user.
type Progress interface {
	SetDescription(desc string)
	Reset(total int64)
	Update(n int64)
	SetPostfix(postfix string)
	Close() error
}

// MessageDataDescription names the per-folder progress measured in bytes.
const MessageDataDescription = "Message data"

// ProgressFactory opens a new Progress with an initial description.
type ProgressFactory func(desc string) Progress

// NopProgress discards every report.
type NopProgress struct{}

func (NopProgress) SetDescription(string) {}
func (NopProgress) Reset(int64)           {}
func (NopProgress) Update(int64)          {}
func (NopProgress) SetPostfix(string)     {}
func (NopProgress) Close() error          { return nil }

func nopFactory(string) Progress { return NopProgress{} }
