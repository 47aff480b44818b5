// Package model 定义了与数据库表对应的 Go 结构体以及接口层使用的传输对象。
package model

import "time"

// Subject 是课程科目，归属于一个用户（教师）。
// 科目、单元、主题的增删改由外部系统负责，这里只读。
type Subject struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"userId"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Subject) TableName() string {
	return "subjects"
}

// Unit 是科目下的单元。
type Unit struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SubjectID uint      `gorm:"not null;index" json:"subjectId"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Unit) TableName() string {
	return "units"
}

// Topic 是单元下的主题，文档挂在主题上。
type Topic struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UnitID    uint      `gorm:"not null;index" json:"unitId"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Topic) TableName() string {
	return "topics"
}

// UnitScope 是一次操作涉及的完整层级，由仓储层一次查出。
type UnitScope struct {
	Subject Subject
	Unit    Unit
}
