package service

import "errors"

var (
	// ErrInvalidInput 表示请求参数不完整或不合法。
	ErrInvalidInput = errors.New("invalid input")
	// ErrFormNotFound 表示表单记录不存在或不属于当前用户。
	ErrFormNotFound = errors.New("form not found")
	// ErrFieldNotFound 表示表单中没有该字段。
	ErrFieldNotFound = errors.New("field not found")
	// ErrDocumentNotFound 表示文档不存在或不属于当前用户。
	ErrDocumentNotFound = errors.New("document not found")
	// ErrContextEntryNotFound 表示上下文条目不存在或不属于当前用户。
	ErrContextEntryNotFound = errors.New("context entry not found")
	// ErrUnsupportedFileType 表示上传了无法抽取文本的文件类型。
	ErrUnsupportedFileType = errors.New("unsupported file type")
)
