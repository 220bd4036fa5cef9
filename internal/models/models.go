package models

// All returns every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Project{},
		&CommitteeMember{},
		&DocumentType{},
		&DeadlineBatch{},
		&Deadline{},
		&DeadlineMiss{},
		&Submission{},
		&SubmissionStatusHistory{},
		&SupervisorMark{},
		&EvaluationMark{},
		&FinalResult{},
		&Notification{},
		&ActivityLog{},
	}
}
