package weights

// LoadReport tallies how a bundle mapped onto a network's parameter
// slots. Missing tensors are not an error: the affected parameters
// stay zero-initialized and the caller decides whether to warn.
type LoadReport struct {
	// Loaded 成功拷贝进参数槽的张量数
	Loaded int
	// Missing 网络需要、bundle 未提供的张量名（按槽位顺序）
	Missing []string
	// Unexpected bundle 提供、网络不认识的张量名
	Unexpected []string
}

// Clean reports whether every slot was filled and nothing was left over.
func (r *LoadReport) Clean() bool {
	return len(r.Missing) == 0 && len(r.Unexpected) == 0
}
