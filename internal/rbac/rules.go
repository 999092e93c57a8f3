package rbac

const (
	RoleManager = "manager"
	RoleGrader  = "grader"
	RoleLearner = "learner"
)

const (
	PermLessonEdit    = "lesson:edit"
	PermLessonView    = "lesson:view"
	PermAttemptSubmit = "attempt:submit"
	PermGradeView     = "grade:view"
	PermRetryDelete   = "retry:delete"
	PermEssayGrade    = "essay:grade"
)

// RolePermissions is the default policy.
var RolePermissions = map[string][]string{
	RoleLearner: {
		PermLessonView,
		PermAttemptSubmit,
	},
	RoleGrader: {
		PermLessonView,
		PermGradeView,
		PermEssayGrade,
	},
	RoleManager: {
		"*", // everything
	},
}
