package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow definitions, stored whole as JSONB
			CREATE TABLE workflow_definitions (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL DEFAULT '',
				active BOOLEAN NOT NULL DEFAULT false,
				nodes JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_definitions_active ON workflow_definitions(active);

			-- Execution records
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				variant VARCHAR(50) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL DEFAULT '',
				workflow_type VARCHAR(255) NOT NULL DEFAULT '',
				lead_id VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'in_progress', 'completed', 'failed')),
				current_node VARCHAR(255) NOT NULL,
				payload JSONB NOT NULL DEFAULT '{}',
				error_message TEXT NOT NULL DEFAULT '',
				steps JSONB NOT NULL DEFAULT '[]',
				compensations JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_status ON executions(status);
			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
			CREATE INDEX idx_executions_lead_id ON executions(lead_id);
			CREATE INDEX idx_executions_created_at ON executions(created_at);
		`,
		2: `
			-- Leads read and updated by the lead nurturing saga
			CREATE TABLE leads (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL DEFAULT '',
				email VARCHAR(255) NOT NULL DEFAULT '',
				phone VARCHAR(64) NOT NULL DEFAULT '',
				score DOUBLE PRECISION NOT NULL DEFAULT 0,
				status VARCHAR(50) NOT NULL DEFAULT '',
				attributes JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_leads_status ON leads(status);
		`,
	}
}
