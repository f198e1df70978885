package inventory

import "time"

// User 用户引用
//
// 密码散列与凭证签发归属外部认证层，这里只保留
// 库存核心需要的身份信息。
type User struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
