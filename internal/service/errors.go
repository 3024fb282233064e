package service

import "errors"

var (
	// ErrInvalidInput 缺少必填字段或字段不合法
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCursor before 参数既不是消息ID也不是时间
	ErrInvalidCursor = errors.New("invalid before parameter")
	// ErrMessageNotFound 消息不存在
	ErrMessageNotFound = errors.New("message not found")
	// ErrForbidden 只能操作自己发送的消息
	ErrForbidden = errors.New("you can only modify your own messages")
	// ErrMessageDeleted 已删除的消息不能编辑
	ErrMessageDeleted = errors.New("message has been deleted")
)
