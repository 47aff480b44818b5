package model

// Identity 是请求级的调用者身份，由认证中间件从 JWT 中解析后逐层传递。
type Identity struct {
	UserID   uint
	Username string
	Role     string
}

// IsAdmin 管理员可以访问任意科目。
func (i Identity) IsAdmin() bool {
	return i.Role == "ADMIN"
}

// CanAccess 判断调用者是否能访问某个科目。
func (i Identity) CanAccess(s Subject) bool {
	return i.IsAdmin() || (i.UserID != 0 && s.UserID == i.UserID)
}
