package record

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument how 非法、过滤/更新结构非法
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDuplicateIdentifier 插入前唯一性检查失败
	ErrDuplicateIdentifier = errors.New("duplicate identifier")

	// ErrBackendUnavailable 任一后端连接/传输失败
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrPartialWrite 双写中一侧成功、一侧失败
	ErrPartialWrite = errors.New("partial write failure")
)

// DuplicateError 携带冲突的 Athlete_ID
type DuplicateError struct {
	ID    Value
	Store Store // 发现冲突的存储，预检查时为空
}

func (e *DuplicateError) Error() string {
	if e.Store != "" {
		return fmt.Sprintf("duplicate %s %s in %s", IdentifierField, e.ID, e.Store)
	}
	return fmt.Sprintf("duplicate %s %s", IdentifierField, e.ID)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicateIdentifier }

// PartialWriteError 一侧成功一侧失败，需要人工对账
type PartialWriteError struct {
	Op        string
	Succeeded Store
	Failed    Store
	Err       error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%s partially applied: %s succeeded, %s failed: %v", e.Op, e.Succeeded, e.Failed, e.Err)
}

// Is 让 errors.Is(err, ErrPartialWrite) 成立，同时 Unwrap 保留底层原因
func (e *PartialWriteError) Is(target error) bool { return target == ErrPartialWrite }

func (e *PartialWriteError) Unwrap() error { return e.Err }

// Unavailable 把传输层错误包装为 ErrBackendUnavailable
func Unavailable(store Store, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, store, err)
}
