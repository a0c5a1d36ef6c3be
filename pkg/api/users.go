package api

import (
	"context"
	"net/http"
	"strings"
)

// 密码最小长度
const minPasswordLength = 6

// UsersService 用户与认证接口
type UsersService struct {
	client *Client
}

// Login 使用用户名密码登录，请求不携带令牌
func (s *UsersService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, ValidationError("Missing username or password")
	}

	var result LoginResult
	_, err := s.client.send(ctx, &request{
		method:    http.MethodPost,
		path:      "/api/users/login",
		body:      Credentials{Username: username, Password: password},
		anonymous: true,
	}, &result)
	if err != nil {
		return nil, err
	}
	if result.Token == "" {
		return nil, &APIError{Kind: KindDecode, Message: "login response has no token", Op: "POST /api/users/login"}
	}
	return &result, nil
}

// GetProfile 获取当前用户信息，也用于校验令牌是否有效
func (s *UsersService) GetProfile(ctx context.Context) (*User, error) {
	var user User
	if _, err := s.client.do(ctx, http.MethodGet, "/api/users/profile", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile 修改密码或重新生成API密钥
func (s *UsersService) UpdateProfile(ctx context.Context, update ProfileUpdate) (*User, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	var user User
	if _, err := s.client.do(ctx, http.MethodPut, "/api/users/profile", nil, update, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
