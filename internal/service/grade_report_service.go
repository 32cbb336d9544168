package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-admin-api/internal/grading"
	"github.com/noah-isme/school-admin-api/internal/models"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
	"github.com/noah-isme/school-admin-api/pkg/export"
)

type scoreSnapshotter interface {
	Snapshot(ctx context.Context, filter models.ScoreFilter) ([]models.ScoreDetail, error)
}

type reportStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

type rosterReader interface {
	ListActiveStudents(ctx context.Context, classID string) ([]models.StudentRef, error)
}

// ReportCardQuery selects a report card. ViewerRole and ViewerID restrict
// STUDENT users to their own record.
type ReportCardQuery struct {
	StudentID  string
	SemesterID string
	ViewerID   string
	ViewerRole models.UserRole
}

// GradebookQuery selects a class gradebook for one subject.
type GradebookQuery struct {
	ClassID    string
	SubjectID  string
	SemesterID string
}

// ExportFile is a rendered report ready for download.
type ExportFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

// GradeReportService derives report cards and gradebooks from stored scores.
type GradeReportService struct {
	scores    scoreSnapshotter
	students  reportStudentReader
	roster    rosterReader
	classes   classReader
	subjects  subjectReader
	semesters semesterReader
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewGradeReportService constructs the service. metrics may be nil.
func NewGradeReportService(scores scoreSnapshotter, students reportStudentReader, roster rosterReader, classes classReader, subjects subjectReader, semesters semesterReader, metrics *MetricsService, logger *zap.Logger) *GradeReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeReportService{
		scores:    scores,
		students:  students,
		roster:    roster,
		classes:   classes,
		subjects:  subjects,
		semesters: semesters,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ReportCard groups a student's semester scores by subject.
func (s *GradeReportService) ReportCard(ctx context.Context, q ReportCardQuery) (*models.ReportCard, error) {
	student, err := s.resolveStudent(ctx, q)
	if err != nil {
		return nil, err
	}
	if q.SemesterID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "semesterId is required")
	}
	semester, err := s.semesters.FindByID(ctx, q.SemesterID)
	if err != nil {
		return nil, lookupError(err, "semester not found", "failed to load semester")
	}

	rows, err := s.scores.Snapshot(ctx, models.ScoreFilter{StudentID: student.ID, SemesterID: semester.ID})
	if err != nil {
		return nil, internalError(err, "failed to load scores")
	}

	keys, groups := grading.Partition(rows, func(row models.ScoreDetail) string { return row.SubjectID })
	subjects := make([]models.SubjectGrade, 0, len(keys))
	for _, subjectID := range keys {
		group := groups[subjectID]
		summary, err := grading.Aggregate(records(group))
		if err != nil {
			return nil, gradingError(err)
		}
		subjects = append(subjects, models.SubjectGrade{
			SubjectID:   subjectID,
			SubjectCode: group[0].SubjectCode,
			SubjectName: group[0].SubjectName,
			Summary:     summary,
		})
	}
	sort.SliceStable(subjects, func(i, j int) bool {
		if subjects[i].SubjectName != subjects[j].SubjectName {
			return subjects[i].SubjectName < subjects[j].SubjectName
		}
		return subjects[i].SubjectCode < subjects[j].SubjectCode
	})

	card := &models.ReportCard{
		Student: models.StudentRef{
			ID:            student.ID,
			StudentNumber: student.StudentNumber,
			FullName:      student.FullName,
		},
		Semester:    models.NamedRef{ID: semester.ID, Name: semester.Name},
		Subjects:    subjects,
		GeneratedAt: s.now(),
	}
	card.OverallAverage = meanFinal(len(subjects), func(i int) float64 { return subjects[i].FinalGrade })
	card.OverallLetter = grading.LetterGrade(card.OverallAverage)

	s.metrics.IncGradeSummaries(models.GradeViewReportCard, len(subjects))
	s.logger.Debug("report card generated",
		zap.String("student_id", student.ID),
		zap.String("semester_id", semester.ID),
		zap.Int("subjects", len(subjects)),
		zap.Int("scores", len(rows)),
	)
	return card, nil
}

// Gradebook groups a class's scores for one subject by student. Every
// actively enrolled student appears, with an empty summary when ungraded.
func (s *GradeReportService) Gradebook(ctx context.Context, q GradebookQuery) (*models.Gradebook, error) {
	if q.ClassID == "" || q.SubjectID == "" || q.SemesterID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "classId, subjectId and semesterId are required")
	}
	class, err := s.classes.FindByID(ctx, q.ClassID)
	if err != nil {
		return nil, lookupError(err, "class not found", "failed to load class")
	}
	subject, err := s.subjects.FindByID(ctx, q.SubjectID)
	if err != nil {
		return nil, lookupError(err, "subject not found", "failed to load subject")
	}
	semester, err := s.semesters.FindByID(ctx, q.SemesterID)
	if err != nil {
		return nil, lookupError(err, "semester not found", "failed to load semester")
	}

	roster, err := s.roster.ListActiveStudents(ctx, class.ID)
	if err != nil {
		return nil, internalError(err, "failed to load class roster")
	}
	rows, err := s.scores.Snapshot(ctx, models.ScoreFilter{ClassID: class.ID, SubjectID: subject.ID, SemesterID: semester.ID})
	if err != nil {
		return nil, internalError(err, "failed to load scores")
	}

	_, groups := grading.Partition(rows, func(row models.ScoreDetail) string { return row.StudentID })
	students := make([]models.StudentGrade, 0, len(roster))
	for _, ref := range roster {
		summary := grading.EmptySummary()
		if group, ok := groups[ref.ID]; ok {
			summary, err = grading.Aggregate(records(group))
			if err != nil {
				return nil, gradingError(err)
			}
		}
		students = append(students, models.StudentGrade{StudentRef: ref, Summary: summary})
	}

	book := &models.Gradebook{
		Class:       models.NamedRef{ID: class.ID, Name: class.Name},
		Subject:     models.NamedRef{ID: subject.ID, Name: subject.Name},
		Semester:    models.NamedRef{ID: semester.ID, Name: semester.Name},
		Students:    students,
		Statistics:  gradebookStats(students),
		GeneratedAt: s.now(),
	}

	s.metrics.IncGradeSummaries(models.GradeViewGradebook, len(students))
	s.logger.Debug("gradebook generated",
		zap.String("class_id", class.ID),
		zap.String("subject_id", subject.ID),
		zap.String("semester_id", semester.ID),
		zap.Int("students", len(students)),
	)
	return book, nil
}

// ExportReportCard renders a report card as CSV or PDF.
func (s *GradeReportService) ExportReportCard(ctx context.Context, q ReportCardQuery, format string) (*ExportFile, error) {
	renderer, err := export.ForFormat(format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	card, err := s.ReportCard(ctx, q)
	if err != nil {
		return nil, err
	}

	table := export.Table{
		Title: "Report Card",
		Meta: []string{
			fmt.Sprintf("Student: %s (%s)", card.Student.FullName, card.Student.StudentNumber),
			"Semester: " + card.Semester.Name,
			fmt.Sprintf("Overall: %s (%s)", formatGrade(card.OverallAverage), card.OverallLetter),
		},
		Columns: []string{"Code", "Subject", "Scores", "Total Weight", "Final Grade", "Letter"},
	}
	for _, subject := range card.Subjects {
		table.Rows = append(table.Rows, []string{
			subject.SubjectCode,
			subject.SubjectName,
			strconv.Itoa(len(subject.Records)),
			formatGrade(subject.TotalWeight),
			formatGrade(subject.FinalGrade),
			subject.LetterGrade,
		})
	}
	return render(renderer, table, "report-card-"+card.Student.StudentNumber)
}

// ExportGradebook renders a gradebook as CSV or PDF.
func (s *GradeReportService) ExportGradebook(ctx context.Context, q GradebookQuery, format string) (*ExportFile, error) {
	renderer, err := export.ForFormat(format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	book, err := s.Gradebook(ctx, q)
	if err != nil {
		return nil, err
	}

	stats := book.Statistics
	table := export.Table{
		Title: "Gradebook",
		Meta: []string{
			"Class: " + book.Class.Name,
			"Subject: " + book.Subject.Name,
			"Semester: " + book.Semester.Name,
			fmt.Sprintf("Students: %d  Average: %s  Highest: %s  Lowest: %s",
				stats.StudentCount, formatGrade(stats.Average), formatGrade(stats.Highest), formatGrade(stats.Lowest)),
		},
		Columns: []string{"Student Number", "Name", "Scores", "Final Grade", "Letter"},
	}
	for _, student := range book.Students {
		table.Rows = append(table.Rows, []string{
			student.StudentNumber,
			student.FullName,
			strconv.Itoa(len(student.Records)),
			formatGrade(student.FinalGrade),
			student.LetterGrade,
		})
	}
	return render(renderer, table, "gradebook-"+book.Class.Name+"-"+book.Subject.Name)
}

func (s *GradeReportService) resolveStudent(ctx context.Context, q ReportCardQuery) (*models.Student, error) {
	if q.ViewerRole == models.RoleStudent {
		own, err := s.students.FindByUserID(ctx, q.ViewerID)
		if err != nil {
			return nil, lookupError(err, "no student profile linked to this account", "failed to load student")
		}
		if q.StudentID != "" && q.StudentID != own.ID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only view their own report card")
		}
		return own, nil
	}
	if q.StudentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}
	student, err := s.students.FindByID(ctx, q.StudentID)
	if err != nil {
		return nil, lookupError(err, "student not found", "failed to load student")
	}
	return student, nil
}

func records(rows []models.ScoreDetail) []grading.ScoreRecord {
	out := make([]grading.ScoreRecord, len(rows))
	for i, row := range rows {
		out[i] = row.Record()
	}
	return out
}

func gradebookStats(students []models.StudentGrade) models.GradebookStats {
	stats := models.GradebookStats{
		StudentCount: len(students),
		Distribution: make(map[string]int, len(grading.Letters())),
	}
	for _, letter := range grading.Letters() {
		stats.Distribution[letter] = 0
	}
	for i, student := range students {
		stats.Distribution[student.LetterGrade]++
		if i == 0 || student.FinalGrade > stats.Highest {
			stats.Highest = student.FinalGrade
		}
		if i == 0 || student.FinalGrade < stats.Lowest {
			stats.Lowest = student.FinalGrade
		}
	}
	stats.Average = meanFinal(len(students), func(i int) float64 { return students[i].FinalGrade })
	return stats
}

// meanFinal is round2 of the mean of n final grades, 0 when n is 0.
func meanFinal(n int, grade func(int) float64) float64 {
	if n == 0 {
		return 0
	}
	var total float64
	for i := 0; i < n; i++ {
		total += grade(i)
	}
	return grading.Round2(total / float64(n))
}

func formatGrade(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func render(renderer export.Renderer, table export.Table, baseName string) (*ExportFile, error) {
	data, err := renderer.Render(table)
	if err != nil {
		return nil, internalError(err, "failed to render export")
	}
	return &ExportFile{
		FileName:    fmt.Sprintf("%s.%s", slugify(baseName), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Data:        data,
	}, nil
}

func slugify(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
