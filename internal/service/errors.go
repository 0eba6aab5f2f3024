package service

import "errors"

var (
	ErrJobNotFound       = errors.New("任务不存在")
	ErrJobPermission     = errors.New("无权操作此任务")
	ErrJobNotRetryable   = errors.New("只有失败的任务可以重试")
	ErrRetryLimit        = errors.New("已达到最大重试次数")
	ErrJobNotCancellable = errors.New("任务已结束，无法取消")
	ErrJobNotCompleted   = errors.New("任务尚未完成")
	ErrInvalidFormat     = errors.New("不支持的下载格式")
	ErrInvalidStatus     = errors.New("无效的任务状态")
	ErrInvalidPriority   = errors.New("优先级必须在 0 到 100 之间")
	ErrFileTooLarge      = errors.New("文件过大")
	ErrEmptyFile         = errors.New("文件为空")
)
