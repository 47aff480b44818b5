// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"errors"

	"edu-rag-go/pkg/errs"

	"gorm.io/gorm"
)

// notFound 把 gorm.ErrRecordNotFound 转换成 errs.KindNotFound，其余错误原样返回。
func notFound(err error, op, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.Newf(errs.KindNotFound, op, format, args...)
	}
	return err
}
