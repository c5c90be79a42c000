package auth

import (
	"context"
	"errors"
)

var (
	// ErrUnauthenticated 请求中没有用户
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden 用户没有该对象上的权限
	ErrForbidden = errors.New("forbidden")
)

// User 当前请求的用户
type User struct {
	ID       string
	Username string
	Email    string
	Roles    []string
}

// HasRole 是否拥有 realm 角色
func (u *User) HasRole(role string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type userKey struct{}

// WithUser 将用户写入 context
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext 从 context 获取用户
func UserFromContext(ctx context.Context) (*User, bool) {
	if ctx == nil {
		return nil, false
	}
	user, ok := ctx.Value(userKey{}).(*User)
	return user, ok && user != nil && user.ID != ""
}

// UserIDFromContext 从 context 获取用户 ID,没有用户时返回空字符串
func UserIDFromContext(ctx context.Context) string {
	if user, ok := UserFromContext(ctx); ok {
		return user.ID
	}
	return ""
}
