package dummydb

import (
	"sync"

	"github.com/kymoh/elimu/core/batch"
	"github.com/kymoh/elimu/core/course"
	"github.com/kymoh/elimu/core/user"
)

type (
	// DB is an in-memory store for tests and local development.
	DB struct {
		user    *userTable
		note    *noteTable
		course  *courseTable
		enrol   *enrolTable
		failure *failureTable
	}

	userTable struct {
		sync.RWMutex
		pk    int
		table map[int]*user.User
	}

	noteTable struct {
		sync.RWMutex
		pk    int
		table map[int]*user.Note
	}

	courseTable struct {
		sync.RWMutex
		pk    int
		table map[int]*course.Course
	}

	enrolTable struct {
		sync.RWMutex
		pk    int
		table map[int]*course.Enrolment
	}

	failureTable struct {
		sync.RWMutex
		pk    int
		table map[int]*batch.FailureRecord
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:    &userTable{table: make(map[int]*user.User)},
		note:    &noteTable{table: make(map[int]*user.Note)},
		course:  &courseTable{table: make(map[int]*course.Course)},
		enrol:   &enrolTable{table: make(map[int]*course.Enrolment)},
		failure: &failureTable{table: make(map[int]*batch.FailureRecord)},
	}
	return db, nil
}
