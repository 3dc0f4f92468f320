package ingest

import "github.com/sattyani/ai-procurement-agent/internal/models"

// SampleProposals returns the built-in demo proposals.
func SampleProposals() []*models.ProposalRecord {
	return []*models.ProposalRecord{
		{
			ID:               "1",
			VendorName:       "Acme Corp",
			ProjectName:      "E-commerce Website Development",
			Timestamp:        "2024-01-15T10:00:00Z",
			Price:            75000,
			DeliveryTimeline: "6 months with monthly milestones, final delivery by July 2024",
			ScopeSummary:     "Full-stack e-commerce platform with React frontend, Node.js backend, payment processing, inventory management, and admin dashboard",
			Risks:            "Third-party payment gateway integration delays, potential scope creep with additional features, dependency on client's existing inventory system",
		},
		{
			ID:               "2",
			VendorName:       "TechSolutions Inc",
			ProjectName:      "Mobile App Development",
			Timestamp:        "2024-01-16T14:30:00Z",
			Price:            45000,
			DeliveryTimeline: "4 months development cycle, iOS and Android versions delivered simultaneously",
			ScopeSummary:     "Native mobile application for iOS and Android, user authentication, real-time notifications, offline capability, and cloud synchronization",
			Risks:            "App store approval delays, device compatibility issues across different OS versions, performance optimization challenges for older devices",
		},
		{
			ID:               "3",
			VendorName:       "DataWise Solutions",
			ProjectName:      "Business Intelligence Dashboard",
			Timestamp:        "2024-01-17T09:15:00Z",
			Price:            120000,
			DeliveryTimeline: "8 months implementation with training, phased rollout starting month 6",
			ScopeSummary:     "Enterprise business intelligence platform with data visualization, automated reporting, predictive analytics, and integration with existing ERP systems",
			Risks:            "Data migration complexity, user adoption challenges, integration timeline dependent on ERP system availability, potential performance issues with large datasets",
		},
		{
			ID:               "4",
			VendorName:       "CloudFirst Technologies",
			ProjectName:      "Cloud Migration Services",
			Timestamp:        "2024-01-18T11:45:00Z",
			Price:            95000,
			DeliveryTimeline: "5 months migration with 2 weeks testing buffer, go-live in month 6",
			ScopeSummary:     "Complete cloud infrastructure migration from on-premises to AWS, including database migration, application modernization, and security setup",
			Risks:            "Data migration downtime, application compatibility issues, security configuration challenges, potential cost overruns due to unexpected AWS usage",
		},
		{
			ID:               "5",
			VendorName:       "AI Innovations Lab",
			ProjectName:      "Machine Learning Platform",
			Timestamp:        "2024-01-19T16:20:00Z",
			Price:            150000,
			DeliveryTimeline: "10 months development with POC in month 3, beta in month 7, production in month 10",
			ScopeSummary:     "Custom machine learning platform for predictive analytics, automated model training, real-time inference API, and comprehensive monitoring dashboard",
			Risks:            "Model accuracy requirements may not be met, data quality issues, integration complexity with existing systems, longer than expected training time for complex models",
		},
	}
}

// DemoQuery is a named search run by the demo command.
type DemoQuery struct {
	Title string
	Spec  models.QuerySpec
}

// SampleQueries returns the demo searches over the sample proposals.
func SampleQueries() []DemoQuery {
	return []DemoQuery{
		{"Web development projects", models.QuerySpec{ScopeQuery: "web development website", ScopeWeight: 1, Limit: 2}},
		{"Mobile app projects", models.QuerySpec{ScopeQuery: "mobile app development", ScopeWeight: 1, Limit: 2}},
		{"Integration risks", models.QuerySpec{RisksQuery: "integration compatibility issues", RisksWeight: 1, Limit: 3}},
		{"Cloud infrastructure projects", models.QuerySpec{ScopeQuery: "cloud infrastructure migration", ScopeWeight: 1, Limit: 2}},
		{"Machine learning projects", models.QuerySpec{ScopeQuery: "machine learning artificial intelligence", ScopeWeight: 1, Limit: 2}},
		{"Highest-value proposals", models.QuerySpec{PriceWeight: 1, Limit: 3}},
	}
}

// DocumentQueries returns the check searches run after ingesting a proposals directory.
func DocumentQueries() []DemoQuery {
	return []DemoQuery{
		{"Project development", models.QuerySpec{ScopeQuery: "project development", ScopeWeight: 1, Limit: 3}},
		{"Risk challenge issue", models.QuerySpec{RisksQuery: "risk challenge issue", RisksWeight: 1, Limit: 3}},
	}
}
