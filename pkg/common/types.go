package common

import "fmt"

// Record 是索引中存放的默认 payload：一条带标签的序列
type Record struct {
	Label    string
	Sequence string
}

// String 方便调试打印
func (r Record) String() string {
	return fmt.Sprintf("Record{Label: %s, SeqLen: %d}", r.Label, len(r.Sequence))
}
