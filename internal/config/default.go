package config

// defaultTemplate is the catalog a fresh tenant starts from. Importing a
// replacement document is the expected path once a tenant grows its own
// event vocabulary.
const defaultTemplate = `version: 1

tenant:
  id: %s
  name: Default Tenant
single_tenant: true

events:
  - event_type: customer.inquiry_received
    category: customer
    source:
      origins: [web_form, email_gateway, phone]
      modules: [crm]
    schema:
      required: [customerName, customerEmail, inquiryType, subject]
      properties:
        customerName: {type: string, description: Contact or company name}
        customerEmail: {type: string, description: Reply-to address}
        inquiryType: {type: string, description: "product, pricing, support or partnership"}
        subject: {type: string}
        message: {type: string}
        source: {type: string}
        phone: {type: string}
        customerId: {type: string, description: Set when the sender matches an existing customer}
    tasks:
      - task_type: respond_inquiry
        title: "Respond to inquiry from {{payload.customerName}}"
        description: "Reply to {{payload.customerEmail}} regarding {{payload.subject}}"
        priority: P1
        due_in_days: 1
        assign_to:
          kind: role
          value: sales_rep
          fallback: {kind: role, value: sales_manager}
      - task_type: create_lead
        title: "Create lead for {{payload.customerName}}"
        description: "New {{payload.inquiryType}} inquiry with no existing customer record"
        priority: P2
        due_in_days: 2
        assign_to:
          kind: role
          value: sales_rep
          fallback: {kind: role, value: sales_manager}
        conditions:
          - {field: customerId, operator: exists, value: false}
    notifications:
      - template: new_inquiry
        channels: [email, in_app]
        recipients:
          - {kind: role, value: sales_manager}
    retention: {days: 365, archive: false}
    enabled: true

  - event_type: customer.order_placed
    category: customer
    source:
      origins: [storefront, sales_desk, api]
      modules: [crm, commerce]
    schema:
      required: [orderId, customerId, totalAmount]
      properties:
        orderId: {type: string}
        customerId: {type: string}
        totalAmount: {type: number, description: Order total in account currency}
        currency: {type: string}
        items: {type: array}
    tasks:
      - task_type: confirm_order
        title: "Confirm order {{payload.orderId}}"
        description: "Verify stock and confirm order for customer {{payload.customerId}}"
        priority: P1
        due_in_days: 1
        assign_to:
          kind: role
          value: sales_rep
          fallback: {kind: role, value: sales_manager}
      - task_type: approve_large_order
        title: "Approve large order {{payload.orderId}}"
        description: "Order total {{payload.totalAmount}} requires management approval"
        priority: P0
        due_in_days: 1
        assign_to:
          kind: role
          value: sales_manager
          fallback: {kind: role, value: coo}
        conditions:
          - {field: totalAmount, operator: gte, value: 10000}
    notifications:
      - template: order_confirmation
        channels: [email]
        recipients:
          - {kind: creator}
      - template: large_order_review
        channels: [email, in_app]
        recipients:
          - {kind: role, value: sales_manager}
        conditions:
          - {field: totalAmount, operator: gte, value: 10000}
    retention: {days: 730, archive: true}
    enabled: true

  - event_type: customer.complaint_received
    category: customer
    source:
      origins: [web_form, email_gateway, phone, storefront]
      modules: [crm, support]
    schema:
      required: [customerId, complaintType, description]
      properties:
        customerId: {type: string}
        complaintType: {type: string, description: "delivery, quality, billing or service"}
        description: {type: string}
        severity: {type: string, description: "low, medium, high or critical"}
        orderId: {type: string}
    tasks:
      - task_type: acknowledge_complaint
        title: "Acknowledge complaint from customer {{payload.customerId}}"
        description: "First response for a {{payload.complaintType}} complaint"
        priority: P1
        due_in_days: 1
        assign_to:
          kind: role
          value: support_agent
          fallback: {kind: role, value: support_manager}
      - task_type: escalate_complaint
        title: "Escalate {{payload.complaintType}} complaint"
        description: "Severity {{payload.severity}} complaint needs management attention"
        priority: P0
        due_in_days: 1
        assign_to:
          kind: role
          value: support_manager
          fallback: {kind: role, value: coo}
        conditions:
          - {field: severity, operator: in, value: [high, critical]}
    notifications:
      - template: complaint_alert
        channels: [email, in_app]
        recipients:
          - {kind: role, value: support_manager}
        conditions:
          - {field: severity, operator: in, value: [high, critical]}
    retention: {days: 1095, archive: true}
    enabled: true

  - event_type: financial.invoice_overdue
    category: financial
    source:
      origins: [billing_scheduler]
      modules: [finance]
    schema:
      required: [invoiceId, customerId, amountDue, daysOverdue]
      properties:
        invoiceId: {type: string}
        customerId: {type: string}
        amountDue: {type: number}
        daysOverdue: {type: number}
        currency: {type: string}
    tasks:
      - task_type: send_reminder
        title: "Send payment reminder for invoice {{payload.invoiceId}}"
        description: "Invoice {{payload.daysOverdue}} days overdue, amount {{payload.amountDue}}"
        priority: P1
        due_in_days: 2
        assign_to:
          kind: role
          value: accountant
          fallback: {kind: role, value: finance_manager}
        conditions:
          - {field: daysOverdue, operator: lte, value: 30}
      - task_type: escalate_debt
        title: "Escalate overdue invoice {{payload.invoiceId}}"
        description: "{{payload.daysOverdue}} days overdue, hand to collections review"
        priority: P0
        due_in_days: 1
        assign_to:
          kind: role
          value: finance_manager
          fallback: {kind: department, value: finance}
        conditions:
          - {field: daysOverdue, operator: gt, value: 30}
    notifications:
      - template: overdue_alert
        channels: [email]
        recipients:
          - {kind: role, value: finance_manager}
        conditions:
          - {field: amountDue, operator: gte, value: 5000}
    retention: {days: 2555, archive: true}
    enabled: true

  - event_type: financial.payment_received
    category: financial
    source:
      origins: [billing_scheduler, bank_feed]
      modules: [finance]
    schema:
      required: [paymentId, invoiceId, amount]
      properties:
        paymentId: {type: string}
        invoiceId: {type: string}
        amount: {type: number}
        method: {type: string}
    tasks:
      - task_type: reconcile_payment
        title: "Reconcile payment {{payload.paymentId}}"
        description: "Match payment against invoice {{payload.invoiceId}}"
        priority: P2
        due_in_days: 3
        assign_to:
          kind: role
          value: accountant
          fallback: {kind: role, value: finance_manager}
    notifications:
      - template: payment_receipt
        channels: [email]
        recipients:
          - {kind: creator}
    retention: {days: 2555, archive: true}
    enabled: true

  - event_type: financial.budget_exceeded
    category: financial
    source:
      origins: [budget_monitor]
      modules: [finance]
    schema:
      required: [department, budgetId, limitAmount, actualAmount]
      properties:
        department: {type: string}
        budgetId: {type: string}
        limitAmount: {type: number}
        actualAmount: {type: number}
        overrunPercent: {type: number}
        ownerId: {type: string, description: Budget owner user id}
    tasks:
      - task_type: review_budget_overrun
        title: "Review budget overrun in {{payload.department}}"
        description: "Budget {{payload.budgetId}} exceeded: {{payload.actualAmount}} against limit {{payload.limitAmount}}"
        priority: P0
        due_in_days: 2
        assign_to:
          kind: role
          value: finance_manager
          fallback: {kind: role, value: coo}
      - task_type: freeze_spending
        title: "Freeze discretionary spending in {{payload.department}}"
        description: "Overrun beyond twenty percent requires a spending freeze"
        priority: P0
        due_in_days: 1
        assign_to:
          kind: manager
          value: "{{payload.ownerId}}"
        conditions:
          - {field: overrunPercent, operator: gt, value: 20}
    notifications:
      - template: budget_alert
        channels: [email, in_app]
        recipients:
          - {kind: role, value: finance_manager}
          - {kind: role, value: coo}
    retention: {days: 1825, archive: true}
    enabled: true

  - event_type: hr.leave_requested
    category: hr
    source:
      origins: [employee_portal]
      modules: [hr]
    schema:
      required: [employeeId, leaveType, startDate, endDate]
      properties:
        employeeId: {type: string}
        leaveType: {type: string, description: "annual, sick, unpaid or parental"}
        startDate: {type: date}
        endDate: {type: date}
        daysRequested: {type: number}
        reason: {type: string}
    tasks:
      - task_type: approve_leave
        title: "Approve leave request from {{payload.employeeId}}"
        description: "{{payload.leaveType}} leave from {{payload.startDate}} to {{payload.endDate}}"
        priority: P1
        due_in_days: 2
        assign_to:
          kind: manager
          value: "{{payload.employeeId}}"
      - task_type: arrange_cover
        title: "Arrange cover for {{payload.employeeId}}"
        description: "Leave longer than ten working days needs cover"
        priority: P2
        due_in_days: 5
        assign_to:
          kind: role
          value: hr_manager
        conditions:
          - {field: daysRequested, operator: gt, value: 10}
    notifications:
      - template: leave_request_submitted
        channels: [in_app]
        recipients:
          - {kind: manager, value: "{{payload.employeeId}}"}
      - template: leave_pending_hr
        channels: [email]
        recipients:
          - {kind: role, value: hr_manager}
        conditions:
          - {field: leaveType, operator: eq, value: unpaid}
    retention: {days: 1825, archive: true}
    enabled: true

  - event_type: hr.employee_onboarded
    category: hr
    source:
      origins: [employee_portal, hr_desk]
      modules: [hr]
    schema:
      required: [employeeId, fullName, department, startDate]
      properties:
        employeeId: {type: string}
        fullName: {type: string}
        department: {type: string}
        startDate: {type: date}
        role: {type: string}
    tasks:
      - task_type: provision_accounts
        title: "Provision accounts for {{payload.fullName}}"
        description: "Create directory, email and tool accounts before {{payload.startDate}}"
        priority: P0
        due_in_days: 1
        assign_to:
          kind: role
          value: it_admin
          fallback: {kind: department, value: it}
      - task_type: prepare_workstation
        title: "Prepare workstation for {{payload.fullName}}"
        priority: P1
        due_in_days: 2
        assign_to:
          kind: department
          value: it
          fallback: {kind: role, value: it_admin}
      - task_type: schedule_orientation
        title: "Schedule orientation for {{payload.fullName}}"
        priority: P1
        due_in_days: 5
        assign_to:
          kind: role
          value: hr_manager
      - task_type: assign_buddy
        title: "Assign onboarding buddy for {{payload.fullName}}"
        priority: P2
        due_in_days: 5
        assign_to:
          kind: manager
          value: "{{payload.employeeId}}"
    notifications:
      - template: welcome_employee
        channels: [email]
        recipients:
          - {kind: user, value: "{{payload.employeeId}}"}
      - template: onboarding_started
        channels: [in_app]
        recipients:
          - {kind: role, value: hr_manager}
          - {kind: manager, value: "{{payload.employeeId}}"}
    retention: {days: 1825, archive: true}
    enabled: true

  - event_type: production.quality_issue
    category: production
    source:
      origins: [factory_floor, qa_station]
      modules: [production]
    schema:
      required: [batchId, productId, issueType, severity]
      properties:
        batchId: {type: string}
        productId: {type: string}
        issueType: {type: string}
        severity: {type: string, description: "minor, major or critical"}
        customersAffected: {type: number}
    tasks:
      - task_type: investigate_quality_issue
        title: "Investigate {{payload.issueType}} in batch {{payload.batchId}}"
        priority: P1
        due_in_days: 2
        assign_to:
          kind: role
          value: quality_lead
          fallback: {kind: role, value: production_manager}
      - task_type: halt_production
        title: "Halt production of {{payload.productId}}"
        description: "Critical quality issue in batch {{payload.batchId}}"
        priority: P0
        due_in_days: 0
        assign_to:
          kind: role
          value: production_manager
          fallback: {kind: role, value: coo}
        conditions:
          - {field: severity, operator: eq, value: critical}
      - task_type: notify_affected_customers
        title: "Notify customers affected by batch {{payload.batchId}}"
        description: "{{payload.customersAffected}} customers may have received affected units"
        priority: P0
        due_in_days: 1
        assign_to:
          kind: role
          value: support_manager
        conditions:
          - {field: customersAffected, operator: gt, value: 0}
    notifications:
      - template: quality_alert
        channels: [email, sms]
        recipients:
          - {kind: role, value: production_manager}
          - {kind: role, value: coo}
        conditions:
          - {field: severity, operator: in, value: [major, critical]}
    retention: {days: 1095, archive: true}
    enabled: true

  - event_type: production.supply_shortage
    category: production
    source:
      origins: [inventory_monitor]
      modules: [production, procurement]
    schema:
      required: [materialId, supplierId, daysUntilStockout]
      properties:
        materialId: {type: string}
        supplierId: {type: string}
        daysUntilStockout: {type: number}
        currentStock: {type: number}
    tasks:
      - task_type: expedite_order
        title: "Expedite replenishment of {{payload.materialId}}"
        description: "Stockout in {{payload.daysUntilStockout}} days, supplier {{payload.supplierId}}"
        priority: P0
        due_in_days: 1
        assign_to:
          kind: role
          value: production_manager
          fallback: {kind: role, value: coo}
        conditions:
          - {field: daysUntilStockout, operator: lte, value: 7}
      - task_type: find_alternate_supplier
        title: "Source alternate supplier for {{payload.materialId}}"
        priority: P1
        due_in_days: 3
        assign_to:
          kind: role
          value: production_manager
        conditions:
          - {field: daysUntilStockout, operator: lte, value: 14}
    notifications:
      - template: shortage_warning
        channels: [email, push]
        recipients:
          - {kind: role, value: production_manager}
        conditions:
          - {field: daysUntilStockout, operator: lte, value: 7}
    retention: {days: 730, archive: false}
    enabled: true

  - event_type: strategic.launch_approved
    category: strategic
    source:
      origins: [board_portal]
      modules: [strategy]
    schema:
      required: [launchId, productName, launchDate]
      properties:
        launchId: {type: string}
        productName: {type: string}
        launchDate: {type: date}
        budget: {type: number}
    tasks:
      - task_type: assemble_launch_team
        title: "Assemble launch team for {{payload.productName}}"
        priority: P0
        due_in_days: 3
        assign_to:
          kind: role
          value: coo
      - task_type: brief_sales_team
        title: "Brief sales team on {{payload.productName}}"
        description: "Launch scheduled {{payload.launchDate}}"
        priority: P1
        due_in_days: 5
        assign_to:
          kind: role
          value: sales_manager
          fallback: {kind: role, value: sales_rep}
      - task_type: plan_campaign
        title: "Plan launch campaign for {{payload.productName}}"
        priority: P1
        due_in_days: 7
        assign_to:
          kind: role
          value: marketing_lead
          fallback: {kind: role, value: sales_manager}
    notifications:
      - template: launch_greenlit
        channels: [email, in_app]
        recipients:
          - {kind: role, value: coo}
          - {kind: role, value: sales_manager}
          - {kind: role, value: production_manager}
    retention: {days: 365, archive: false}
    enabled: true

  - event_type: strategic.market_alert
    category: strategic
    source:
      origins: [intel_feed]
      modules: [strategy]
    schema:
      required: [alertType, summary]
      properties:
        alertType: {type: string}
        summary: {type: string}
        competitorId: {type: string}
    tasks:
      - task_type: assess_market_impact
        title: "Assess market impact of {{payload.alertType}} alert"
        priority: P1
        due_in_days: 2
        assign_to:
          kind: role
          value: coo
    retention: {days: 90, archive: false}
    enabled: false

roles:
  - role: sales_rep
    name: Sales Representative
    department: sales
    task_capabilities:
      - event_type: customer.inquiry_received
        task_types: [respond_inquiry, create_lead]
        can_initiate: true
        can_execute: true
      - event_type: customer.order_placed
        task_types: [confirm_order]
        can_initiate: true
        can_execute: true

  - role: sales_manager
    name: Sales Manager
    department: sales
    task_capabilities:
      - event_type: customer.inquiry_received
        task_types: [respond_inquiry, create_lead]
        can_execute: true
        can_approve: true
        can_delegate: true
      - event_type: customer.order_placed
        task_types: [confirm_order, approve_large_order]
        can_execute: true
        can_approve: true
        can_delegate: true
      - event_type: strategic.launch_approved
        task_types: [brief_sales_team, plan_campaign]
        can_execute: true
    approval_authorities:
      - {type: discount, can_approve_for: sales, max_amount: 5000}

  - role: support_agent
    name: Support Agent
    department: support
    task_capabilities:
      - event_type: customer.complaint_received
        task_types: [acknowledge_complaint]
        can_execute: true

  - role: support_manager
    name: Support Manager
    department: support
    task_capabilities:
      - event_type: customer.complaint_received
        task_types: [acknowledge_complaint, escalate_complaint]
        can_execute: true
        can_approve: true
        can_delegate: true
      - event_type: production.quality_issue
        task_types: [notify_affected_customers]
        can_execute: true
    approval_authorities:
      - {type: goodwill_credit, can_approve_for: support, max_amount: 500}

  - role: accountant
    name: Accountant
    department: finance
    task_capabilities:
      - event_type: financial.invoice_overdue
        task_types: [send_reminder]
        can_execute: true
      - event_type: financial.payment_received
        task_types: [reconcile_payment]
        can_initiate: true
        can_execute: true

  - role: finance_manager
    name: Finance Manager
    department: finance
    task_capabilities:
      - event_type: financial.invoice_overdue
        task_types: [send_reminder, escalate_debt]
        can_execute: true
        can_approve: true
        can_delegate: true
      - event_type: financial.budget_exceeded
        task_types: [review_budget_overrun, freeze_spending]
        can_execute: true
        can_approve: true
      - event_type: financial.payment_received
        task_types: [reconcile_payment]
        can_approve: true
    approval_authorities:
      - {type: expense, can_approve_for: finance, max_amount: 25000}
      - {type: invoice_writeoff, can_approve_for: finance, max_amount: 10000}

  - role: hr_manager
    name: HR Manager
    department: hr
    task_capabilities:
      - event_type: hr.leave_requested
        task_types: [approve_leave, arrange_cover]
        can_execute: true
        can_approve: true
      - event_type: hr.employee_onboarded
        task_types: [schedule_orientation, assign_buddy]
        can_initiate: true
        can_execute: true
    approval_authorities:
      - {type: leave, can_approve_for: company}
      - {type: hiring, can_approve_for: department}

  - role: it_admin
    name: IT Administrator
    department: it
    task_capabilities:
      - event_type: hr.employee_onboarded
        task_types: [provision_accounts, prepare_workstation]
        can_execute: true

  - role: quality_lead
    name: Quality Lead
    department: production
    task_capabilities:
      - event_type: production.quality_issue
        task_types: [investigate_quality_issue]
        can_initiate: true
        can_execute: true

  - role: production_manager
    name: Production Manager
    department: production
    task_capabilities:
      - event_type: production.quality_issue
        task_types: [investigate_quality_issue, halt_production]
        can_execute: true
        can_approve: true
        can_delegate: true
      - event_type: production.supply_shortage
        task_types: [expedite_order, find_alternate_supplier]
        can_initiate: true
        can_execute: true
        can_approve: true
    approval_authorities:
      - {type: purchase, can_approve_for: production, max_amount: 50000}

  - role: marketing_lead
    name: Marketing Lead
    department: marketing
    task_capabilities:
      - event_type: strategic.launch_approved
        task_types: [plan_campaign]
        can_execute: true

  - role: coo
    name: Chief Operating Officer
    department: executive
    task_capabilities:
      - event_type: strategic.launch_approved
        task_types: [assemble_launch_team, brief_sales_team, plan_campaign]
        can_initiate: true
        can_execute: true
        can_approve: true
        can_delegate: true
      - event_type: financial.budget_exceeded
        task_types: [review_budget_overrun, freeze_spending]
        can_approve: true
      - event_type: production.quality_issue
        task_types: [halt_production]
        can_approve: true
      - event_type: strategic.market_alert
        task_types: [assess_market_impact]
        can_initiate: true
        can_execute: true
    approval_authorities:
      - {type: expense, can_approve_for: company}
      - {type: launch, can_approve_for: company}
`
